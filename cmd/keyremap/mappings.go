package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"keyremap/internal/config"
	"keyremap/internal/engine"
	"keyremap/internal/input"
	"keyremap/internal/mapping"
	"keyremap/internal/store"
)

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func defaultConfigHint() string {
	if p := config.FindConfigFile(); p != "" {
		return p
	}
	return config.ConfigPath()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(configPath string) (*config.Config, mapping.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStoreFrom(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func openStoreFrom(cfg *config.Config) (mapping.Store, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// resolveID expands a unique id prefix.
func resolveID(ctx context.Context, st mapping.Repository, prefix string) (string, error) {
	ms, err := st.List(ctx)
	if err != nil {
		return "", err
	}
	var found []string
	for _, m := range ms {
		if m.ID == prefix {
			return m.ID, nil
		}
		if strings.HasPrefix(m.ID, prefix) {
			found = append(found, m.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%s: %w", prefix, mapping.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d matches)", prefix, len(found))
	}
}

// idCommand parses flags and the single <id> argument shared by remove,
// enable, disable and toggle.
func idCommand(name string, args []string) (mapping.Store, string, error) {
	fs, configPath := newFlagSet(name)
	if err := parseFlags(fs, args); err != nil {
		return nil, "", err
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "Usage: keyremap %s <id>\n", name)
		return nil, "", errUsage
	}

	_, st, err := openStore(*configPath)
	if err != nil {
		return nil, "", err
	}
	id, err := resolveID(context.Background(), st, fs.Arg(0))
	if err != nil {
		st.Close()
		return nil, "", err
	}
	return st, id, nil
}

func cmdList(args []string) error {
	fs, configPath := newFlagSet("list")
	enabledOnly := fs.Bool("enabled", false, "Show only enabled mappings")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	_, st, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ms, err := st.List(context.Background())
	if err != nil {
		return err
	}
	if *enabledOnly {
		ms = mapping.Active(ms)
	}
	if len(ms) == 0 {
		fmt.Fprintln(stdout, "No mappings.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENABLED\tSOURCE\tTARGET\tOPTIONS")
	for _, m := range ms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(m.ID),
			yesNo(m.Enabled),
			m.Source.DisplayName(),
			describeTarget(m.Target),
			describeOptions(m),
		)
	}
	return w.Flush()
}

func cmdAdd(args []string) error {
	fs, configPath := newFlagSet("add")
	source := fs.String("source", "", "Triggering key or button, e.g. f1 or mouse_middle")
	target := fs.String("target", "", "Sequence to synthesize, e.g. ctrl+c or shift,up,down")
	delay := fs.Int("delay", 0, "Delay between target actions in ms (0 = default)")
	turbo := fs.Bool("turbo", false, "Repeat at the turbo interval")
	loop := fs.Bool("loop", false, "Repeat until stopped")
	stop := fs.String("stop", "", "Key or button that stops the loop")
	disabled := fs.Bool("disabled", false, "Store the mapping disabled")
	preset := fs.String("preset", "", "Start from a preset (see 'keyremap presets')")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var m mapping.Mapping
	if *preset != "" {
		p, ok := mapping.Preset(*preset)
		if !ok {
			return fmt.Errorf("unknown preset %q (available: %s)", *preset, strings.Join(mapping.PresetNames(), ", "))
		}
		m = p
	} else {
		if *target == "" {
			fmt.Fprintln(stderr, "Usage: keyremap add -source <event> -target <sequence> [options]")
			return errUsage
		}
		m = mapping.New(input.Event{})
	}

	if *source == "" {
		fmt.Fprintln(stderr, "Usage: keyremap add -source <event> -target <sequence> [options]")
		return errUsage
	}
	src, err := input.ParseEvent(*source)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	m.Source = src

	if set["target"] {
		seq, err := input.ParseSequence(*target)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		m.Target = seq
	}
	if set["delay"] {
		m.DelayMs = *delay
	}
	if set["turbo"] {
		m.Turbo = *turbo
	}
	if set["loop"] {
		m.Loop = *loop
	}
	if *stop != "" {
		ev, err := input.ParseEvent(*stop)
		if err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		m.StopKey = &ev
	}
	m.Enabled = !*disabled

	if err := m.Validate(); err != nil {
		return err
	}

	_, st, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	existing, err := st.List(ctx)
	if err != nil {
		return err
	}
	if m.Enabled {
		if err := engine.Check(append(existing, m)); err != nil {
			return err
		}
	}
	if err := st.Add(ctx, m); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Added %s: %s -> %s\n", m.ID, m.Source.DisplayName(), describeTarget(m.Target))
	return nil
}

func cmdRemove(args []string) error {
	st, id, err := idCommand("remove", args)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(context.Background(), id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Removed %s\n", id)
	return nil
}

func cmdSetEnabled(args []string, enabled bool) error {
	name := "disable"
	if enabled {
		name = "enable"
	}
	st, id, err := idCommand(name, args)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	ms, err := st.List(ctx)
	if err != nil {
		return err
	}
	for _, m := range ms {
		if m.ID != id {
			continue
		}
		if m.Enabled == enabled {
			fmt.Fprintf(stdout, "%s is already %s\n", id, enabledWord(enabled))
			return nil
		}
		m.Enabled = enabled
		if enabled {
			if err := engine.Check(replace(ms, m)); err != nil {
				return err
			}
		}
		if err := st.Update(ctx, m); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s\n", id, enabledWord(enabled))
		return nil
	}
	return fmt.Errorf("%s: %w", id, mapping.ErrNotFound)
}

func cmdToggle(args []string) error {
	st, id, err := idCommand("toggle", args)
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := st.Toggle(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s\n", id, enabledWord(m.Enabled))
	return nil
}

func cmdCheck(args []string) error {
	fs, configPath := newFlagSet("check")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	_, st, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ms, err := st.List(context.Background())
	if err != nil {
		return err
	}
	if err := engine.Check(ms); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "OK: %d mappings, %d enabled\n", len(ms), len(mapping.Active(ms)))
	return nil
}

func cmdKeys() {
	fmt.Fprintln(stdout, "Keyboard:")
	printColumns(input.KeyValues())
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Mouse:")
	printColumns(input.MouseValues())
}

func cmdPresets() {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTARGET\tOPTIONS")
	for _, name := range mapping.PresetNames() {
		p, _ := mapping.Preset(name)
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, describeTarget(p.Target), describeOptions(p))
	}
	w.Flush()
}

func printColumns(values []string) {
	const perRow = 6
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for i, v := range values {
		fmt.Fprint(w, "  ", v)
		if (i+1)%perRow == 0 || i == len(values)-1 {
			fmt.Fprintln(w)
		} else {
			fmt.Fprint(w, "\t")
		}
	}
	w.Flush()
}

func replace(ms []mapping.Mapping, m mapping.Mapping) []mapping.Mapping {
	out := mapping.CloneAll(ms)
	for i := range out {
		if out[i].ID == m.ID {
			out[i] = m
		}
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func enabledWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func describeTarget(seq []input.Event) string {
	names := make([]string, len(seq))
	for i, ev := range seq {
		names[i] = ev.DisplayName()
	}
	return strings.Join(names, " + ")
}

func describeOptions(m mapping.Mapping) string {
	var opts []string
	if m.DelayMs > 0 {
		opts = append(opts, fmt.Sprintf("delay=%dms", m.DelayMs))
	}
	if m.Turbo {
		opts = append(opts, "turbo")
	}
	if m.Loop {
		opts = append(opts, "loop")
	}
	if m.StopKey != nil {
		opts = append(opts, "stop="+m.StopKey.DisplayName())
	}
	if len(opts) == 0 {
		return "-"
	}
	return strings.Join(opts, " ")
}
