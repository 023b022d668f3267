package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sushant-115/idxtree/core/indexing/idxtree"
	"github.com/sushant-115/idxtree/core/indexmanager"
)

// errExit ends the interactive loop.
var errExit = errors.New("exit")

// shell runs one command line at a time against a local or remote index.
type shell struct {
	index indexmanager.RecordIndex
	out   io.Writer
}

type command struct {
	usage string
	args  int // minimum argument count
	run   func(sh *shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"create":  {"create <index> <key_size> [page_size] [max_entries]", 2, (*shell).create},
		"add":     {"add <index> <key> <page_num> <slot_num>", 4, (*shell).add},
		"find":    {"find <index> <key>", 2, (*shell).find},
		"scan":    {"scan <index> [limit]", 1, (*shell).scan},
		"dump":    {"dump <index>", 1, (*shell).dump},
		"stats":   {"stats <index>", 1, (*shell).stats},
		"check":   {"check <index>", 1, (*shell).check},
		"list":    {"list", 0, (*shell).list},
		"destroy": {"destroy <index>", 1, (*shell).destroy},
		"demo":    {"demo [max_entries]", 0, (*shell).demo},
		"help":    {"help", 0, (*shell).help},
	}
}

// exec runs one tokenized command line.
func (sh *shell) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	if name == "exit" || name == "quit" {
		return errExit
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, type 'help' for a list of commands", args[0])
	}
	if len(args)-1 < cmd.args {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(sh, ctx, args[1:])
}

func (sh *shell) printf(format string, args ...any) {
	fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) create(ctx context.Context, args []string) error {
	var cfg indexmanager.IndexConfig
	var err error
	if cfg.KeySize, err = parseUint32(args[1], "key_size"); err != nil {
		return err
	}
	cfg.PageSize = idxtree.DefaultPageSize
	if len(args) > 2 {
		if cfg.PageSize, err = parseUint32(args[2], "page_size"); err != nil {
			return err
		}
	}
	if len(args) > 3 {
		maxEntries, err := parseUint32(args[3], "max_entries")
		if err != nil {
			return err
		}
		cfg.MaxEntries = int(maxEntries)
	}
	info, err := sh.index.CreateIndex(ctx, args[0], cfg)
	if err != nil {
		return err
	}
	sh.printf("Created index %s (id %s, %d entries per page)\n", info.Name, info.ID, info.Stats.LeafCapacity)
	return nil
}

func (sh *shell) add(ctx context.Context, args []string) error {
	key, err := sh.parseKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	var loc idxtree.RecordLocator
	if loc.PageNum, err = parseUint32(args[2], "page_num"); err != nil {
		return err
	}
	if loc.SlotNum, err = parseUint32(args[3], "slot_num"); err != nil {
		return err
	}
	if err := sh.index.AddRecord(ctx, args[0], key, loc); err != nil {
		return err
	}
	sh.printf("OK\n")
	return nil
}

func (sh *shell) find(ctx context.Context, args []string) error {
	key, err := sh.parseKey(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	loc, found, err := sh.index.FindRecord(ctx, args[0], key)
	if err != nil {
		return err
	}
	if !found {
		sh.printf("Not found\n")
		return nil
	}
	sh.printf("Page num: %d, Slot num: %d\n", loc.PageNum, loc.SlotNum)
	return nil
}

func (sh *shell) scan(ctx context.Context, args []string) error {
	limit := 0
	if len(args) > 1 {
		n, err := parseUint32(args[1], "limit")
		if err != nil {
			return err
		}
		limit = int(n)
	}
	records, err := sh.index.ScanIndex(ctx, args[0], limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPAGE\tSLOT")
	for _, r := range records {
		fmt.Fprintf(tw, "0x%x\t%d\t%d\n", r.Key, r.Locator.PageNum, r.Locator.SlotNum)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	sh.printf("(%d records)\n", len(records))
	return nil
}

func (sh *shell) dump(ctx context.Context, args []string) error {
	return sh.index.DumpIndex(ctx, args[0], sh.out)
}

func (sh *shell) stats(ctx context.Context, args []string) error {
	info, err := sh.index.IndexStats(ctx, args[0])
	if err != nil {
		return err
	}
	s := info.Stats
	tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Index:\t%s\n", info.Name)
	fmt.Fprintf(tw, "ID:\t%s\n", info.ID)
	fmt.Fprintf(tw, "Key size:\t%d\n", s.KeySize)
	fmt.Fprintf(tw, "Page size:\t%d\n", s.PageSize)
	fmt.Fprintf(tw, "Entries per page:\t%d\n", s.LeafCapacity)
	fmt.Fprintf(tw, "Height:\t%d\n", s.Height)
	fmt.Fprintf(tw, "Records:\t%d\n", s.Records)
	fmt.Fprintf(tw, "Pages:\t%d (%d leaves)\n", s.Pages, s.LeafPages)
	fmt.Fprintf(tw, "Splits:\t%d (%d at the root)\n", s.Splits, s.RootSplits)
	return tw.Flush()
}

func (sh *shell) check(ctx context.Context, args []string) error {
	if err := sh.index.CheckIndex(ctx, args[0]); err != nil {
		return err
	}
	sh.printf("Index %s is consistent\n", args[0])
	return nil
}

func (sh *shell) list(ctx context.Context, _ []string) error {
	infos, err := sh.index.ListIndexes(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		sh.printf("No indexes\n")
		return nil
	}
	tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKEY SIZE\tRECORDS\tHEIGHT")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", info.Name, info.Stats.KeySize, info.Stats.Records, info.Stats.Height)
	}
	return tw.Flush()
}

func (sh *shell) destroy(ctx context.Context, args []string) error {
	if err := sh.index.DropIndex(ctx, args[0]); err != nil {
		return err
	}
	sh.printf("Destroyed index %s\n", args[0])
	return nil
}

// demo replays the reference calls: a 4096-byte page, 4-byte keys, keys
// 1,2,4,3,5 pointing at slots 3..7 of page 2, then a dump. An optional
// entry limit makes the splits visible.
func (sh *shell) demo(ctx context.Context, args []string) error {
	const name = "demo"
	create := []string{name, "4", "4096"}
	if len(args) > 0 {
		create = append(create, args[0])
	}
	if err := sh.create(ctx, create); err != nil {
		return err
	}
	for i, k := range []string{"1", "2", "4", "3", "5"} {
		if err := sh.add(ctx, []string{name, k, "2", strconv.Itoa(3 + i)}); err != nil {
			return err
		}
	}
	return sh.dump(ctx, []string{name})
}

func (sh *shell) help(context.Context, []string) error {
	names := []string{"create", "add", "find", "scan", "dump", "stats", "check", "list", "destroy", "demo", "help"}
	sh.printf("Commands:\n")
	for _, n := range names {
		sh.printf("  %s\n", commands[n].usage)
	}
	sh.printf("  exit / quit\n")
	sh.printf("Keys are 0x-prefixed hex, or unsigned integers stored big-endian in key_size bytes.\n")
	return nil
}

// parseKey decodes a key for the named index. Integers are encoded
// big-endian so byte order matches numeric order.
func (sh *shell) parseKey(ctx context.Context, index, s string) ([]byte, error) {
	if hexKey, ok := strings.CutPrefix(s, "0x"); ok {
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex key %q: %w", s, err)
		}
		return key, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid key %q: want 0x-prefixed hex or an unsigned integer", s)
	}
	info, err := sh.index.IndexStats(ctx, index)
	if err != nil {
		return nil, err
	}
	size := int(info.Stats.KeySize)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	if size >= 8 {
		return append(make([]byte, size-8), buf[:]...), nil
	}
	for _, b := range buf[:8-size] {
		if b != 0 {
			return nil, fmt.Errorf("key %d does not fit in %d bytes", n, size)
		}
	}
	return buf[8-size:], nil
}

func parseUint32(s, field string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	return uint32(n), nil
}
