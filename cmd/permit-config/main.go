package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/oarkflow/permit"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("permit-config - Rule configuration tool for permit")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  permit-config convert <input> <output>                          - Convert between formats")
	fmt.Println("  permit-config validate <file>                                   - Validate configuration")
	fmt.Println("  permit-config stats <file>                                      - Show configuration statistics")
	fmt.Println("  permit-config check <file> <action> <resource> [instance-json] [context-json]")
	fmt.Println("                                                                  - Evaluate a check against the rules")
	fmt.Println()
	fmt.Println("Supported formats: .rules, .yaml, .yml, .json, .bin")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permit-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	loader := permit.NewConfigLoader()
	cfg, err := loader.LoadFile(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := loader.SaveFile(outputFile, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)

	inStat, _ := os.Stat(inputFile)
	outStat, _ := os.Stat(outputFile)
	if inStat != nil && outStat != nil {
		reduction := (1 - float64(outStat.Size())/float64(inStat.Size())) * 100
		if reduction > 0 {
			fmt.Printf("Size reduced by %.1f%% (%d -> %d bytes)\n",
				reduction, inStat.Size(), outStat.Size())
		} else {
			fmt.Printf("Size increased by %.1f%% (%d -> %d bytes)\n",
				-reduction, inStat.Size(), outStat.Size())
		}
	}
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := permit.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Rules:   %d\n", len(cfg.Rules))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := permit.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	allowCount := 0
	denyCount := 0
	conditional := 0
	resources := map[string]int{}
	for _, r := range cfg.Rules {
		if r.Effect == permit.EffectAllow {
			allowCount++
		} else {
			denyCount++
		}
		if !r.Condition.Empty() {
			conditional++
		}
		resources[r.Resource]++
	}

	fmt.Println("Rules:")
	fmt.Printf("  Total:       %d\n", len(cfg.Rules))
	fmt.Printf("  Allow:       %d\n", allowCount)
	fmt.Printf("  Deny:        %d\n", denyCount)
	fmt.Printf("  Conditional: %d\n", conditional)
	fmt.Println()

	if len(resources) > 0 {
		fmt.Println("Resources:")
		for name, n := range resources {
			fmt.Printf("  %-12s %d\n", name, n)
		}
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Rule limit:         %d\n", cfg.Engine.RuleLimit)
	fmt.Printf("  Substitution cache: %v\n", cfg.Engine.SubstitutionCache)
	fmt.Printf("  Result cache:       %v\n", cfg.Engine.ResultCache)
}

func handleCheck() {
	if len(os.Args) < 5 {
		fmt.Println("Usage: permit-config check <file> <action> <resource> [instance-json] [context-json]")
		os.Exit(1)
	}

	filename := os.Args[2]
	action := os.Args[3]
	resource := os.Args[4]

	var instance any
	if len(os.Args) > 5 {
		if err := json.Unmarshal([]byte(os.Args[5]), &instance); err != nil {
			fmt.Printf("Error parsing instance: %v\n", err)
			os.Exit(1)
		}
	}
	evalCtx := map[string]any{}
	if len(os.Args) > 6 {
		if err := json.Unmarshal([]byte(os.Args[6]), &evalCtx); err != nil {
			fmt.Printf("Error parsing context: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := permit.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := permit.New(permit.NewMemoryRuleStore(),
		permit.WithContextProvider(func(ctx context.Context) (map[string]any, error) {
			return evalCtx, nil
		}),
	)
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	var allowed bool
	if instance == nil {
		allowed, err = engine.Can(ctx, action, resource)
	} else {
		allowed, err = engine.CanAccess(ctx, action, resource, instance)
	}
	if err != nil {
		fmt.Printf("Error evaluating check: %v\n", err)
		os.Exit(1)
	}

	if allowed {
		fmt.Printf("ALLOW %s on %s\n", action, resource)
		return
	}
	fmt.Printf("DENY %s on %s\n", action, resource)
	os.Exit(2)
}
