package infra

import (
	"fmt"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner displays the startup banner with mode-specific warnings
func PrintBanner(cfg *Config, symbol string) {
	mode := strings.ToUpper(cfg.Trading.Mode)

	color := ColorGreen
	modeDesc := "SIMULATION"
	switch cfg.Trading.Mode {
	case ModeReal:
		color = ColorRed
		modeDesc = "REAL MONEY TRADING"
	case ModeTestnet:
		color = ColorYellow
		modeDesc = "TESTNET (PLAY MONEY)"
	case ModePaper:
		color = ColorCyan
		modeDesc = "PAPER FILLS, LIVE DATA"
	}

	line := func(format string, args ...any) {
		fmt.Printf("%s"+format+"%s\n", append(append([]any{color}, args...), ColorReset)...)
	}

	fmt.Println()
	line("###########################################################")
	line("#                 Bytra Derivatives Trader                #")
	line("#                                                         #")
	line("#   MODE:     %-43s #", mode)
	line("#   TYPE:     %-43s #", modeDesc)
	line("#   STRATEGY: %-43s #", cfg.Trading.Strategy)
	line("#   SYMBOL:   %-43s #", symbol)
	line("#   VERSION:  %-43s #", cfg.App.Version)
	if cfg.Trading.Mode == ModeReal {
		fmt.Printf("%s#   WARNING: YOU ARE TRADING WITH REAL MONEY              #%s\n", ColorRed, ColorReset)
		fmt.Printf("%s#   ENSURE YOU HAVE VERIFIED YOUR STRATEGY ON TESTNET     #%s\n", ColorRed, ColorReset)
	}
	line("###########################################################")
	fmt.Println()
}
