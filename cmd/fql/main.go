// Command fql runs FQL scripts against an embedded ledger database, either
// from a file or as an interactive REPL.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/HMB-research/fql"
	"github.com/HMB-research/fql/internal/config"
)

func main() {
	configPath := flag.String("config", "fql.yaml", "path to config file")
	scriptPath := flag.String("f", "", "script file to execute (defaults to interactive mode)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var opts []fql.Option
	if cfg.Storage.JournalLog != "" {
		opts = append(opts, fql.WithJournalLog(cfg.Storage.JournalLog))
	}
	db, err := fql.Open(opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	if *scriptPath != "" {
		data, err := os.ReadFile(*scriptPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read script")
		}
		if err := run(db, string(data)); err != nil {
			log.Fatal().Err(err).Msg("Script failed")
		}
		return
	}

	repl(db)
}

// repl reads statements from stdin, executing each buffered script when a
// line ends with a semicolon. A blank line also submits the buffer.
func repl(db *fql.DB) {
	fmt.Println("fql interactive shell - end statements with ';', ctrl-d to exit")
	scanner := bufio.NewScanner(os.Stdin)
	var buffer strings.Builder

	fmt.Print("fql> ")
	for scanner.Scan() {
		line := scanner.Text()
		buffer.WriteString(line)
		buffer.WriteByte('\n')

		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, ";") || (trimmed == "" && buffer.Len() > 1) {
			script := strings.TrimSpace(buffer.String())
			buffer.Reset()
			if script != "" {
				if err := run(db, script); err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
				}
			}
			fmt.Print("fql> ")
			continue
		}
		fmt.Print("...> ")
	}
	fmt.Println()
}

func run(db *fql.DB, script string) error {
	results, err := db.Execute(script)
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.JournalsCreated > 0 {
			fmt.Printf("journals created: %d\n", result.JournalsCreated)
		}
		names := make([]string, 0, len(result.Variables))
		for name := range result.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s = %s\n", name, result.Variables[name])
		}
	}
	return nil
}
