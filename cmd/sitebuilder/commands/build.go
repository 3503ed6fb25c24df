package commands

import (
	"fmt"

	"git.home.luguber.info/inful/sitebuilder/internal/siteconfig"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output string `short:"o" help:"Output directory (overrides dest from the configuration)"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Dest = b.Output
	}

	ctx, cancel := signalContext()
	defer cancel()

	s := siteconfig.FromConfig(cfg).WithLogger(g.logger())
	report, err := s.Build(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(g.out(), report.Summary())
	return nil
}
