package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/siteconfig"
)

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	JSON bool `help:"Print as JSON"`
}

// Inspection describes an assembled site without building it.
type Inspection struct {
	Src      string          `json:"src"`
	Dest     string          `json:"dest"`
	Location string          `json:"location"`
	Plugins  []PluginSummary `json:"plugins"`
}

// PluginSummary describes one registered plugin.
type PluginSummary struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Parts       []PluginSummary `json:"parts,omitempty"`
}

func (c *InspectCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	in := Inspect(siteconfig.FromConfig(cfg))
	if c.JSON {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		return enc.Encode(in)
	}
	return in.write(g.out())
}

// Inspect summarises s: its directories and plugins in registration order.
func Inspect(s *site.Site) Inspection {
	in := Inspection{Src: s.Src(), Dest: s.Dest(), Location: s.Location()}
	for _, p := range s.Plugins() {
		in.Plugins = append(in.Plugins, summarize(p))
	}
	return in
}

type bundled interface {
	Parts() []plugin.Plugin
}

func summarize(p plugin.Plugin) PluginSummary {
	md := p.Metadata()
	sum := PluginSummary{Name: md.Name, Version: md.Version, Type: string(md.Type), Description: md.Description}
	if b, ok := p.(bundled); ok {
		for _, part := range b.Parts() {
			sum.Parts = append(sum.Parts, summarize(part))
		}
	}
	return sum
}

func (in Inspection) write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "src:      %s\n", in.Src)
	fmt.Fprintf(&b, "dest:     %s\n", in.Dest)
	fmt.Fprintf(&b, "location: %s\n", in.Location)
	b.WriteString("plugins:\n")
	for i, p := range in.Plugins {
		fmt.Fprintf(&b, "  %d. %s (%s, %s)\n", i+1, p.Name, p.Type, p.Version)
		for _, part := range p.Parts {
			fmt.Fprintf(&b, "     - %s\n", part.Name)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
