// Package config loads optional YAML defaults for the kytan CLI so an
// operator can pin flags like the shared key or listen address without
// retyping them on every invocation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds the defaults for the `kytan server` subcommand.
type Server struct {
	Listen string `yaml:"listen"`
	Port   uint16 `yaml:"port"`
	Key    string `yaml:"key"`
	DNS    string `yaml:"dns"`
}

// Client holds the defaults for the `kytan client` subcommand.
type Client struct {
	Server         string `yaml:"server"`
	Port           uint16 `yaml:"port"`
	Key            string `yaml:"key"`
	NoDefaultRoute bool   `yaml:"no_default_route"`
}

// File is the top-level shape of a kytan config file. Either section may
// be absent; a nil Server or Client leaves that subcommand on the
// package's baked-in defaults.
type File struct {
	Server *Server `yaml:"server"`
	Client *Client `yaml:"client"`
}

// Load reads and parses a YAML config file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

func defaultServer() Server {
	return Server{
		Listen: "0.0.0.0",
		Port:   9527,
		DNS:    "8.8.8.8",
	}
}

func defaultClient() Client {
	return Client{}
}

// ServerDefaults returns f's server section, falling back to the
// package's baked-in defaults for any field f.Server leaves zero, or for
// every field when f is nil or carries no server section.
func (f *File) ServerDefaults() Server {
	d := defaultServer()
	if f == nil || f.Server == nil {
		return d
	}
	if f.Server.Listen != "" {
		d.Listen = f.Server.Listen
	}
	if f.Server.Port != 0 {
		d.Port = f.Server.Port
	}
	if f.Server.Key != "" {
		d.Key = f.Server.Key
	}
	if f.Server.DNS != "" {
		d.DNS = f.Server.DNS
	}
	return d
}

// ClientDefaults returns f's client section the same way ServerDefaults
// does for the server one.
func (f *File) ClientDefaults() Client {
	d := defaultClient()
	if f == nil || f.Client == nil {
		return d
	}
	if f.Client.Server != "" {
		d.Server = f.Client.Server
	}
	if f.Client.Port != 0 {
		d.Port = f.Client.Port
	}
	if f.Client.Key != "" {
		d.Key = f.Client.Key
	}
	d.NoDefaultRoute = f.Client.NoDefaultRoute
	return d
}
