// Command simulate is the synchronous reference CLI: it runs exactly one
// backtest against the kernel directly, bypassing the Job Manager
// entirely, and prints the Result DTO to stdout.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"fingraph-backtest/internal/job"
	"fingraph-backtest/internal/kernel"
	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/service"
	"fingraph-backtest/internal/simerr"
	"fingraph-backtest/internal/strategy"
)

// cliConfig mirrors the original simulation tool's config file shape
// (camelCase, dataPath/strategy/parameters/initialCash) rather than the
// snake_case wire DTO the HTTP facade uses — this file is consumed only
// by a human or a shell script invoking the binary directly.
type cliConfig struct {
	DataPath    string             `json:"dataPath"`
	Strategy    string             `json:"strategy"`
	Parameters  map[string]float64 `json:"parameters"`
	InitialCash float64            `json:"initialCash"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <config_file.json>\n", os.Args[0])
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := run(os.Args[1], logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *zap.Logger) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return simerr.Wrap(simerr.CodeIOError, "could not open config file: "+configPath, err)
	}

	var cfg cliConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return simerr.Wrap(simerr.CodeParseError, "could not parse config file", err)
	}

	series, warnings, err := market.LoadFromFile(cfg.DataPath)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn("skipped malformed market data row", zap.Error(w))
	}

	strat, ok := strategy.New(cfg.Strategy)
	if !ok {
		return simerr.New(simerr.CodeUnknownStrategy, "unknown strategy: "+cfg.Strategy)
	}
	strat.UpdateParameters(cfg.Parameters)
	if err := strat.Initialize(series); err != nil {
		return err
	}

	result, _, err := kernel.Run(series, strat, cfg.InitialCash, kernel.Options{Logger: logger})
	if err != nil {
		return err
	}

	dto := service.ResultToDTO(job.GenerateID(), result)
	out, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return simerr.Wrap(simerr.CodeInternal, "could not serialize result", err)
	}

	fmt.Println(string(out))
	return nil
}
