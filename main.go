// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🥔 go-potatogrid - Editable Record Grid")
	fmt.Println("=======================================")
	fmt.Println()
	fmt.Println("go-potatogrid keeps an editable grid of records in memory, tracks added, edited")
	fmt.Println("and deleted rows, and applies them to SQLite or PostgreSQL in one pass.")
	fmt.Println()

	fmt.Println("📚 Available Examples:")
	fmt.Println()
	fmt.Println("1. 🌐 Grid Server (examples/grid_server/)")
	fmt.Println("   JSON API over one grid session")
	fmt.Println("   Features: JWT auth, CORS, Prometheus metrics, SQLite or PostgreSQL storage")
	fmt.Println("   Run: go run ./examples/grid_server -config grid.yaml")
	fmt.Println()

	fmt.Println("2. 🖥️  Grid Console (examples/grid_console/)")
	fmt.Println("   Interactive terminal editor for the grid")
	fmt.Println("   Features: list/add/edit/delete rows, apply or cancel pending changes, history")
	fmt.Println("   Run: go run ./examples/grid_console -db potato.db")
	fmt.Println()
}
