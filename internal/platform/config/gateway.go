package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GatewayRoutes is the gateway's route table and public allow-list.
type GatewayRoutes struct {
	Routes []RouteSpec     `yaml:"routes"`
	Public PublicPathsSpec `yaml:"public"`
}

// RouteSpec forwards requests whose path starts with Prefix to Upstream,
// replacing Prefix with Rewrite. An empty Rewrite keeps the path unchanged.
type RouteSpec struct {
	Prefix   string `yaml:"prefix"`
	Upstream string `yaml:"upstream"`
	Rewrite  string `yaml:"rewrite"`
}

// PublicPathsSpec lists paths that skip authentication at the edge.
type PublicPathsSpec struct {
	Prefixes []string `yaml:"prefixes"`
	Exact    []string `yaml:"exact"`
}

// DefaultGatewayRoutes routes everything to a single user-service upstream.
func DefaultGatewayRoutes(upstream string) GatewayRoutes {
	return GatewayRoutes{
		Routes: []RouteSpec{
			{Prefix: "/api/users/", Upstream: upstream, Rewrite: "/"},
			{Prefix: "/user-service/", Upstream: upstream, Rewrite: "/"},
			{Prefix: "/actuator/user-service/", Upstream: upstream, Rewrite: "/actuator/"},
			{Prefix: "/public/", Upstream: upstream},
			{Prefix: "/auth/", Upstream: upstream},
		},
		Public: DefaultPublicPaths(),
	}
}

// DefaultPublicPaths is the edge allow-list used when the routes file has none.
func DefaultPublicPaths() PublicPathsSpec {
	return PublicPathsSpec{
		Prefixes: []string{
			"/api/users/public/",
			"/user-service/public/",
			"/public/",
			"/actuator/user-service/",
			"/actuator/account-service/",
		},
		Exact: []string{
			"/actuator/health",
			"/actuator/info",
		},
	}
}

// LoadGatewayRoutes reads the YAML route file at path. An empty path yields
// the defaults for upstream. A file without a public section keeps the default
// allow-list.
func LoadGatewayRoutes(path, upstream string) (GatewayRoutes, error) {
	if path == "" {
		return DefaultGatewayRoutes(upstream), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return GatewayRoutes{}, fmt.Errorf("read gateway routes: %w", err)
	}

	var routes GatewayRoutes
	if err := yaml.Unmarshal(data, &routes); err != nil {
		return GatewayRoutes{}, fmt.Errorf("parse gateway routes: %w", err)
	}
	if len(routes.Public.Prefixes) == 0 && len(routes.Public.Exact) == 0 {
		routes.Public = DefaultPublicPaths()
	}
	if err := routes.Validate(); err != nil {
		return GatewayRoutes{}, err
	}
	return routes, nil
}

// Validate checks that every route has a rooted prefix and an upstream.
func (g GatewayRoutes) Validate() error {
	if len(g.Routes) == 0 {
		return errors.New("gateway routes: at least one route is required")
	}
	for i, r := range g.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("gateway routes[%d]: prefix %q must start with /", i, r.Prefix)
		}
		if r.Upstream == "" {
			return fmt.Errorf("gateway routes[%d]: upstream is required", i)
		}
		if r.Rewrite != "" && !strings.HasPrefix(r.Rewrite, "/") {
			return fmt.Errorf("gateway routes[%d]: rewrite %q must start with /", i, r.Rewrite)
		}
	}
	return nil
}
