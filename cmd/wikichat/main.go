// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package main

import (
	"os"

	"github.com/askwiki/wikichat/cmd/wikichat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
