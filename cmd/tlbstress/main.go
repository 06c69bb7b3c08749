// tlbstress forces frequent TLB flushes by repeatedly mapping, touching, and
// unmapping anonymous memory regions across multiple OS threads. It stresses
// the Translation Lookaside Buffer to reveal performance degradation or
// instability under frequent virtual-to-physical remapping.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/osprobe/tlbstress/internal/stress"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func main() {
	fs := flag.NewFlagSet("tlbstress", flag.ContinueOnError)

	def := stress.DefaultConfig()
	threads := fs.Int("t", def.Threads, "number of worker threads (1-64)")
	pages := fs.Int("p", def.PagesPerThread, "pages per thread (1-100000)")
	duration := fs.Int("d", def.DurationSeconds, "test duration in seconds")
	iterations := fs.Int("i", def.IterationsPerCycle, "iterations per cycle (1-10000)")
	profile := fs.String("profile", "", "YAML workload profile (explicit flags override its values)")
	jsonOut := fs.Bool("json", false, "print the summary as JSON")
	progress := fs.Bool("progress", term.IsTerminal(int(os.Stderr.Fd())), "show a progress bar")
	debug := fs.Bool("debug", false, "enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [OPTIONS]\n", os.Args[0])
		fmt.Fprintf(fs.Output(), "TLB Flush Stress Test - forces frequent TLB flushes via memory mapping\n\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nThis test stresses the Translation Lookaside Buffer (TLB) by repeatedly\n")
		fmt.Fprintf(fs.Output(), "mapping, accessing, and unmapping memory regions across multiple threads.\n")
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := def
	if *profile != "" {
		var err error
		cfg, err = stress.LoadProfile(*profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags given on the command line win over the profile.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			cfg.Threads = *threads
		case "p":
			cfg.PagesPerThread = *pages
		case "d":
			cfg.DurationSeconds = *duration
		case "i":
			cfg.IterationsPerCycle = *iterations
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *jsonOut, *progress); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg stress.Config, jsonOut, progress bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	driver, err := stress.NewDriver(cfg, slog.Default())
	if err != nil {
		return err
	}

	pageKB := os.Getpagesize() / 1024

	fmt.Printf("=== TLB Flush Stress Test ===\n")
	fmt.Printf("Threads: %d\n", cfg.Threads)
	fmt.Printf("Pages per thread: %d (%d KB per thread)\n", cfg.PagesPerThread, cfg.PagesPerThread*pageKB)
	fmt.Printf("Duration: %d seconds\n", cfg.DurationSeconds)
	fmt.Printf("Iterations per cycle: %d\n", cfg.IterationsPerCycle)
	fmt.Printf("Total memory per cycle: %d MB\n",
		int64(cfg.Threads)*int64(cfg.PagesPerThread)*int64(cfg.IterationsPerCycle)*int64(pageKB)/1024)
	fmt.Printf("\nStarting TLB stress test...\n")

	var barDone chan struct{}
	if progress {
		bar := progressbar.Default(int64(cfg.DurationSeconds), "stress")
		barDone = make(chan struct{})
		go func() {
			defer close(barDone)
			defer bar.Close()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for i := 0; i < cfg.DurationSeconds; i++ {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					bar.Add(1)
				}
			}
		}()
	}

	summary := driver.Run(ctx)

	// Interrupted runs report partial results and still exit 0.
	interrupted := ctx.Err() != nil
	stop()
	if barDone != nil {
		<-barDone
	}

	fmt.Println()
	if jsonOut {
		data, err := summary.JSON()
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Print(summary.String())
	if interrupted {
		fmt.Printf("\nTLB Flush Stress Test interrupted; partial results above.\n")
	} else {
		fmt.Printf("\nTLB Flush Stress Test completed successfully.\n")
	}
	return nil
}
