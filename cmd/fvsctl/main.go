// fvsctl is a thin command-line wrapper over a Variable Store block backed
// by the simulated flash device, used for manual exercise of the protocol
// and for producing/inspecting snapshot fixtures. It is explicitly not part
// of the core (spec.md §1's "Out of scope: the CLI / test harness
// wrapper"); it exists only to drive the real package from a terminal, the
// way the teacher's cmd/novusdb wraps api.DB.
//
// Usage:
//
//	fvsctl -f state.img init
//	fvsctl -f state.img get   --id 1 --size 4
//	fvsctl -f state.img write --id 1 --data 12345678
//	fvsctl -f state.img delete --id 1 --size 4
//	fvsctl -f state.img dump --o snapshot.bin
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/grissiom/fvs/flash/simhal"
	"github.com/grissiom/fvs/internal/snapshot"
	"github.com/grissiom/fvs/store"
	"github.com/grissiom/fvs/word"
)

var (
	statePath = flag.StringP("file", "f", "fvsctl.img", "path to the simulated flash state file")
	pageSize  = flag.Uint32("page-size", 256, "physical page size in bytes")
	width16   = flag.Bool("w16", true, "use 16-bit native words (default); --w16=false selects 32-bit")
	recID     = flag.Uint32("id", 0, "record id")
	recSize   = flag.Uint32("size", 0, "record size in bytes")
	recData   = flag.String("data", "", "hex-encoded payload for write")
	outPath   = flag.String("o", "", "output path for dump")
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: fvsctl -f <file> <init|get|write|delete|dump> [flags]")
		os.Exit(2)
	}

	w := word.Width32
	if *width16 {
		w = word.Width16
	}

	cmd := flag.Arg(0)
	if cmd == "init" {
		runInit(w)
		return
	}

	sess, err := openSession(*statePath, *pageSize, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer sess.close()

	b, err := store.New(sess.fl, 0, *pageSize, *pageSize, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	b.SetLogger(func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "  "+format+"\n", args...)
	})

	switch cmd {
	case "get":
		runGet(b, sess)
	case "write":
		runWrite(b, sess)
	case "delete":
		runDelete(b, sess)
	case "dump":
		runDump(b)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", cmd)
		os.Exit(2)
	}
}

// runInit creates a fresh, fully-erased two-page flash image and persists
// it, giving later invocations a fixture to reopen.
func runInit(w word.Width) {
	fl := simhal.New(2**pageSize, *pageSize, w)
	if err := fl.SaveTo(*statePath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("initialized %s: 2 x %d byte pages\n", *statePath, *pageSize)
}

func runGet(b *store.Block, sess *session) {
	if *recID == 0 || *recSize == 0 {
		fmt.Fprintln(os.Stderr, "error: get requires --id and --size")
		os.Exit(2)
	}
	payload, err := b.Get(*recID, *recSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("id=%d size=%d data=%s\n", *recID, *recSize, hex.EncodeToString(payload))
	persist(sess)
}

func runWrite(b *store.Block, sess *session) {
	if *recID == 0 {
		fmt.Fprintln(os.Stderr, "error: write requires --id")
		os.Exit(2)
	}
	data, err := hex.DecodeString(*recData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: --data must be hex: %v\n", err)
		os.Exit(2)
	}
	if err := b.Write(*recID, uint32(len(data)), data); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote id=%d size=%d\n", *recID, len(data))
	persist(sess)
}

func runDelete(b *store.Block, sess *session) {
	if *recID == 0 || *recSize == 0 {
		fmt.Fprintln(os.Stderr, "error: delete requires --id and --size")
		os.Exit(2)
	}
	if err := b.Delete(*recID, *recSize); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("deleted id=%d\n", *recID)
	persist(sess)
}

func runDump(b *store.Block) {
	size, page0, page1 := b.RawPages()
	blob, err := snapshot.Export(snapshot.Snapshot{PageSize: size, Page0: page0, Page1: page1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	dest := *outPath
	if dest == "" {
		dest = *statePath + ".snap"
	}
	if err := os.WriteFile(dest, blob, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	rawLen := len(page0) + len(page1)
	fmt.Printf("wrote snapshot %s (%d -> %d bytes compressed)\n", dest, rawLen, len(blob))
}

func persist(sess *session) {
	if err := sess.save(); err != nil {
		fmt.Fprintf(os.Stderr, "error: saving state: %v\n", err)
		os.Exit(1)
	}
}
