// cmd/tokengen/main.go

// 開發用工具：以 TOKEN_SECRET 簽發指定身分的 bearer token。
//
//	go run ./cmd/tokengen -sub alice -ttl 24h

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ledger/internal/auth"
	"ledger/internal/config"
)

func main() {
	sub := flag.String("sub", "", "identity placed in the sub claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime (0: no expiry)")
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "couldn't load config:", err)
		os.Exit(2)
	}
	if *sub == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen -sub <identity> [-ttl 24h]")
		os.Exit(2)
	}
	tok, err := auth.Issue(cfg.TokenSecret, *sub, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
