package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/chazu/symbridge/artifact"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/runner"
	"github.com/chazu/symbridge/store"
	"github.com/dustin/go-humanize"
)

func runInspect(paths []string) error {
	if len(paths) == 0 {
		return errors.New("usage: symjit inspect <file>...")
	}
	caps := host.Detect()
	for _, path := range paths {
		h, err := artifact.ReadHeaderFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n", path)
		fmt.Printf("  id:       %s\n", h.ID)
		fmt.Printf("  version:  %d\n", h.Version)
		fmt.Printf("  kind:     %s\n", runner.Kind(h.Kind))
		fmt.Printf("  domain:   %s\n", bytecode.Domain(h.Domain))
		fmt.Printf("  isa:      %s (%d lanes)\n", h.ISA, h.Lanes)
		fmt.Printf("  arity:    %d params, %d outputs\n", h.Params, h.Outputs)
		fmt.Printf("  payload:  %s, checksum %016x\n", humanize.Bytes(h.PayloadLen), h.Checksum)
		if h.Compressed() {
			fmt.Printf("  flags:    compressed\n")
		}
		if err := artifact.Verify(h, caps, nil); err != nil {
			fmt.Printf("  runs here: no (%v)\n", err)
		} else {
			fmt.Printf("  runs here: yes\n")
		}
	}
	return nil
}

// runDisasm prints the bytecode of an artifact. Interpreted artifacts carry
// it directly; native ones carry it as their relinkable code.
func runDisasm(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: symjit disasm <file>")
	}
	a, err := artifact.ReadFile(args[0])
	if err != nil {
		return err
	}
	data := a.Payload.Bytecode
	if a.Payload.Native != nil {
		data = a.Payload.Native.Code
	}
	c, err := bytecode.Deserialize(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Print(c.DisassembleWithName(fmt.Sprintf("%s %s", runner.Kind(a.Header.Kind), a.Header.ID)))
	return nil
}

func runCache(args []string) error {
	path, err := store.DefaultPath()
	if err != nil {
		return err
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	cmd := "list"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "list":
		entries, err := st.Entries("")
		if err != nil {
			return err
		}
		var total int64
		for _, e := range entries {
			total += e.Size
			fmt.Printf("%s  %-24s %-10s %8s  %s\n", e.Key, runner.Kind(e.Kind), e.ISA,
				humanize.Bytes(uint64(e.Size)), humanize.Time(e.Created))
		}
		fmt.Printf("%d artifacts, %s in %s\n", len(entries), humanize.Bytes(uint64(total)), st.Path())
	case "prune":
		if len(args) < 2 {
			return errors.New("usage: symjit cache prune <age, e.g. 720h>")
		}
		age, err := time.ParseDuration(args[1])
		if err != nil {
			return err
		}
		n, err := st.Prune(time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d artifacts\n", n)
	default:
		return fmt.Errorf("unknown cache subcommand: %s", cmd)
	}
	return nil
}
