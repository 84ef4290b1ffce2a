package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/splitfold/royalty/internal/proof"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitBadInput = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("proofverify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	recipient := fs.String("recipient", "", "report the expected vs actual amount for one recipient ref")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: proofverify [-recipient REF] BUNDLE_FILE\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitBadInput
	}

	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "proofverify: %v\n", err)
		return exitBadInput
	}

	var bundle proof.Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		fmt.Fprintf(stderr, "proofverify: invalid bundle document: %v\n", err)
		return exitBadInput
	}

	result := proof.Verify(bundle, proof.Options{
		RecipientRef: strings.TrimSpace(*recipient),
	})

	if result.Recipient != nil {
		r := result.Recipient
		if !r.Found {
			fmt.Fprintf(stdout, "recipient %s: not present in bundle\n", r.RecipientRef)
		} else if r.Match {
			fmt.Fprintf(stdout, "recipient %s: amount %d verified\n", r.RecipientRef, r.ActualAmount)
		} else {
			fmt.Fprintf(stdout, "recipient %s: expected %d, actual %d\n", r.RecipientRef, r.ExpectedAmount, r.ActualAmount)
		}
	}

	if result.OK {
		fmt.Fprintln(stdout, "PASS")
		return exitOK
	}

	fmt.Fprintln(stdout, "FAIL")
	for _, msg := range result.Errors {
		fmt.Fprintf(stdout, "  - %s\n", msg)
	}
	return exitFailed
}
