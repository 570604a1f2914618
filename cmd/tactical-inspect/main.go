// Command tactical-inspect opens a KV engine read-only and dumps the chain
// states and records it finds, grounded on cmd/server/main.go's flag and
// signal-handling shape but without a long-running server loop: this tool
// does one pass and exits.
package main

import (
	"bytes"
	"context"
	"encoding/gob"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/angular/tactical/internal/config"
	"github.com/angular/tactical/internal/keyenc"
	"github.com/angular/tactical/internal/kv"
	"github.com/angular/tactical/internal/kv/badger"
	"github.com/angular/tactical/internal/kv/memory"
	"github.com/angular/tactical/internal/store"
)

func main() {
	configFlag := flag.String("config", "", "path to a YAML config file (see internal/config); overrides -engine/-path when set")
	engineFlag := flag.String("engine", "memory", "kv engine to inspect: memory or badger")
	pathFlag := flag.String("path", "", "badger database path (required when -engine=badger)")
	keyFlag := flag.String("key", "", "if set, dump only the chain whose ChainKey.Serial equals this value")
	exportFlag := flag.String("export", "", "if set, also write each chain as a gob-serialized export file into this directory")
	flag.Parse()

	if err := run(*configFlag, *engineFlag, *pathFlag, *keyFlag, *exportFlag, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tactical-inspect:", err)
		os.Exit(1)
	}
}

func run(configPath, engineKind, path, filterKey, exportDir string, out *os.File) error {
	engine, err := openEngine(configPath, engineKind, path)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	ctx := context.Background()

	serials, err := engine.Keys(ctx, store.ChainsStore)
	if err != nil {
		return fmt.Errorf("listing chains: %w", err)
	}
	keys := serials.Sort(func(a, b string) bool { return a < b }).Collect()

	if filterKey != "" {
		filtered := keys[:0]
		for _, k := range keys {
			if k == filterKey {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}

	for _, serial := range keys {
		if err := dumpChain(ctx, engine, serial, out); err != nil {
			return fmt.Errorf("chain %q: %w", serial, err)
		}
	}

	if exportDir == "" {
		return nil
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	eg := &errgroup.Group{}
	eg.SetLimit(4)
	for _, serial := range keys {
		eg.Go(func() error {
			if err := exportChain(ctx, engine, serial, exportDir); err != nil {
				return fmt.Errorf("export %q: %w", serial, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func openEngine(configPath, kind, path string) (kv.Engine, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return cfg.OpenKV()
	}
	switch kind {
	case "memory":
		return memory.New(), nil
	case "badger":
		if path == "" {
			return nil, fmt.Errorf("-path is required for -engine=badger")
		}
		return badger.Open(path)
	default:
		return nil, fmt.Errorf("unknown engine %q (want memory or badger)", kind)
	}
}

func dumpChain(ctx context.Context, engine kv.Engine, serial string, out *os.File) error {
	raw, ok, err := engine.Get(ctx, store.ChainsStore, serial)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	state, ok := raw.(store.ChainState)
	if !ok {
		return fmt.Errorf("unexpected chain state type %T", raw)
	}

	fmt.Fprintf(out, "chain %s\n", serial)
	fmt.Fprintf(out, "  current: %s\n", state.Current)
	if err := dumpRecord(ctx, engine, serial, state.Current, out, "    "); err != nil {
		return err
	}
	for _, v := range state.Outdated {
		fmt.Fprintf(out, "  outdated: %s\n", v)
		if err := dumpRecord(ctx, engine, serial, v, out, "    "); err != nil {
			return err
		}
	}
	return nil
}

// ChainExport is the on-disk unit written by -export: one chain's state and
// the records stored at its current and outdated versions, keyed by version
// serial. The initial records those mutation versions are based on are not
// included.
type ChainExport struct {
	Serial   string
	Current  keyenc.Version
	Outdated []keyenc.Version
	Records  map[string]store.Entry
}

func (c *ChainExport) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("tactical-inspect: serialize export: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *ChainExport) Deserialize(raw []byte) error {
	return gob.NewDecoder(bytes.NewReader(raw)).Decode(c)
}

func exportChain(ctx context.Context, engine kv.Engine, serial, dir string) error {
	raw, ok, err := engine.Get(ctx, store.ChainsStore, serial)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	state, ok := raw.(store.ChainState)
	if !ok {
		return fmt.Errorf("unexpected chain state type %T", raw)
	}

	export := &ChainExport{
		Serial:   serial,
		Current:  state.Current,
		Outdated: state.Outdated,
		Records:  make(map[string]store.Entry, len(state.Outdated)+1),
	}
	for _, v := range append([]keyenc.Version{state.Current}, state.Outdated...) {
		entryRaw, ok, err := engine.Get(ctx, store.RecordsStore, keyenc.RecordKey{Chain: keyenc.ChainKey{Serial: serial}, Version: v}.Serial())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		entry, ok := entryRaw.(store.Entry)
		if !ok {
			return fmt.Errorf("unexpected record type %T", entryRaw)
		}
		export.Records[v.Serial()] = entry
	}

	data, err := export.Serialize()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, url.QueryEscape(serial)+".gob"), data, 0o644)
}

func dumpRecord(ctx context.Context, engine kv.Engine, chainSerial string, v keyenc.Version, out *os.File, indent string) error {
	recordKey := keyenc.RecordKey{Chain: keyenc.ChainKey{Serial: chainSerial}, Version: v}.Serial()
	raw, ok, err := engine.Get(ctx, store.RecordsStore, recordKey)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "%s(no record)\n", indent)
		return nil
	}
	entry, ok := raw.(store.Entry)
	if !ok {
		return fmt.Errorf("unexpected record type %T", raw)
	}
	fmt.Fprintf(out, "%svalue:   %#v\n", indent, entry.Value)
	fmt.Fprintf(out, "%scontext: %#v\n", indent, entry.Context)
	return nil
}
