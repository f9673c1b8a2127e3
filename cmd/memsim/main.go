// Command memsim is the interactive front end for the allocator and cache
// simulator. It owns the fixed heap region, tokenizes command lines, and
// renders results; all semantics live in the memsim façade.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goat-simulator444/Memory-Management-Simulator/memsim"
)

// HeapSize is the fixed size of the simulated heap region in bytes.
const HeapSize = 64 * 1024

var gHeap = make([]byte, HeapSize)

func main() {
	var logLevel string
	var jsonStats bool

	rootCmd := &cobra.Command{
		Use:           "memsim",
		Short:         "Interactive heap allocator and multi-level cache sandbox",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			allocator, err := memsim.New(gHeap[:], memsim.CreateOptions{Logger: logger})
			if err != nil {
				return err
			}

			runREPL(allocator, jsonStats)
			return nil
		},
	}

	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug|info|warn|error)")
	rootCmd.Flags().BoolVar(&jsonStats, "json-stats", false, "render stats as JSON instead of text")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print("Available commands:\n" +
		"  malloc <size> [strategy] - allocate <size> bytes using optional strategy (first|best|worst)\n" +
		"  free <id>                - free the block identified by <id>\n" +
		"  dump                     - show all memory blocks\n" +
		"  stats                    - show allocator statistics (e.g., fragmentation)\n" +
		"  read <id> <off> <size>   - read <size> bytes from block <id> at offset <off>\n" +
		"  write <id> <off> <data>  - write ASCII <data> into block <id> at offset <off>\n" +
		"  cache                    - open cache configuration menu\n" +
		"  help                     - show this help message\n" +
		"  exit | quit              - exit the program\n")
}

// nextToken splits off the next whitespace-delimited token, returning it and
// the unconsumed remainder of the line.
func nextToken(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func runREPL(allocator *memsim.Allocator, jsonStats bool) {
	scanner := bufio.NewScanner(os.Stdin)
	printHelp()

	for {
		fmt.Print("\nallocator> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		cmd, rest := nextToken(line)
		if cmd == "" {
			continue
		}

		switch cmd {
		case "malloc":
			sizeTok, remainder := nextToken(rest)
			size, err := strconv.Atoi(sizeTok)
			if err != nil {
				fmt.Println("Usage: malloc <size> [strategy]")
				continue
			}

			strategy, _ := nextToken(remainder)
			var id int64
			if strategy != "" {
				id = allocator.MallocWithStrategyName(size, strategy)
			} else {
				id = allocator.Malloc(size)
			}
			fmt.Printf("Allocated id=%d for size=%d\n", id, size)

		case "free":
			idTok, _ := nextToken(rest)
			id, err := strconv.ParseInt(idTok, 10, 64)
			if err != nil {
				fmt.Println("Usage: free <id>")
				continue
			}
			allocator.Free(id)
			fmt.Printf("Freed id=%d\n", id)

		case "dump":
			allocator.Dump()

		case "stats":
			if jsonStats {
				fmt.Println(allocator.BuildStatsString(true))
			} else {
				allocator.Stats()
			}

		case "read":
			idTok, remainder := nextToken(rest)
			offTok, remainder2 := nextToken(remainder)
			sizeTok, _ := nextToken(remainder2)

			id, errID := strconv.ParseInt(idTok, 10, 64)
			offset, errOff := strconv.Atoi(offTok)
			size, errSize := strconv.Atoi(sizeTok)
			if errID != nil || errOff != nil || errSize != nil {
				fmt.Println("Usage: read <id> <offset> <size>")
				continue
			}
			if size <= 0 {
				fmt.Println("Size must be > 0")
				continue
			}

			buffer := make([]byte, size)
			if !allocator.Read(id, offset, buffer) {
				fmt.Println("Read failed (invalid id/range or uninitialized/freed data).")
				continue
			}

			fmt.Print("Data (ASCII): ")
			for _, c := range buffer {
				if c >= 0x20 && c < 0x7f {
					fmt.Printf("%c", c)
				} else {
					fmt.Print(".")
				}
			}
			fmt.Print("\nData (hex): ")
			for _, c := range buffer {
				fmt.Printf("%02x ", c)
			}
			fmt.Println()

		case "write":
			idTok, remainder := nextToken(rest)
			offTok, remainder2 := nextToken(remainder)

			id, errID := strconv.ParseInt(idTok, 10, 64)
			offset, errOff := strconv.Atoi(offTok)
			data := strings.TrimLeft(remainder2, " \t")
			if errID != nil || errOff != nil || data == "" {
				fmt.Println("Usage: write <id> <offset> <data...>")
				continue
			}

			if !allocator.Write(id, offset, []byte(data)) {
				fmt.Println("Write failed (invalid id/range).")
				continue
			}
			fmt.Printf("Wrote %d byte(s) to block id=%d at offset=%d\n", len(data), id, offset)

		case "cache":
			cacheMenuLoop(allocator, scanner)

		case "help":
			printHelp()

		case "exit", "quit":
			return

		default:
			fmt.Printf("Unknown command: %s (type 'help' for usage)\n", cmd)
		}
	}
}

func promptInt(scanner *bufio.Scanner, prompt string) (int, bool) {
	fmt.Print(prompt)
	if !scanner.Scan() {
		return 0, false
	}
	value, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, false
	}
	return value, true
}

func cacheMenuLoop(allocator *memsim.Allocator, scanner *bufio.Scanner) {
	for {
		fmt.Print("\n\n=== Cache Configuration Menu ===\n" +
			"1) Initialize default cache\n" +
			"2) Reset cache (no levels)\n" +
			"3) Add cache level\n" +
			"4) Configure existing cache level\n" +
			"5) Dump cache statistics\n" +
			"0) Exit cache menu\n" +
			"\nallocator>cache> ")

		if !scanner.Scan() {
			return
		}
		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			continue
		}

		switch choice {
		case 1:
			allocator.CacheInitDefault()
		case 2:
			allocator.CacheReset()
		case 3:
			sizeBytes, ok := promptInt(scanner, "Enter level size in bytes: ")
			if !ok {
				break
			}
			blockSize, ok := promptInt(scanner, "Enter block size in bytes: ")
			if !ok {
				break
			}
			associativity, ok := promptInt(scanner, "Enter associativity (ways): ")
			if !ok {
				break
			}
			latency, ok := promptInt(scanner, "Enter access latency (cycles): ")
			if !ok {
				break
			}
			allocator.CacheAddLevel(sizeBytes, blockSize, associativity, latency)
		case 4:
			levelCount := allocator.CacheLevelCount()
			if levelCount == 0 {
				fmt.Println("No cache levels to configure.")
				break
			}

			fmt.Printf("Existing levels: %d (L1..L%d)\n", levelCount, levelCount)
			level, ok := promptInt(scanner, "Select level number to configure (1-based): ")
			if !ok {
				break
			}
			if level <= 0 || level > levelCount {
				fmt.Println("Invalid level.")
				break
			}
			sizeBytes, ok := promptInt(scanner, "Enter new size in bytes: ")
			if !ok {
				break
			}
			blockSize, ok := promptInt(scanner, "Enter new block size in bytes: ")
			if !ok {
				break
			}
			associativity, ok := promptInt(scanner, "Enter new associativity (ways): ")
			if !ok {
				break
			}
			latency, ok := promptInt(scanner, "Enter new access latency (cycles): ")
			if !ok {
				break
			}
			allocator.CacheConfigureLevel(level-1, sizeBytes, blockSize, associativity, latency)
		case 5:
			allocator.Cache().WriteStats(os.Stdout)
		case 0:
			return
		default:
			fmt.Println("Unknown option.")
		}
	}
}
