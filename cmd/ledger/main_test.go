package main

import (
	"testing"

	"github.com/odyssey-erp/ledger/internal/app"
	_ "github.com/odyssey-erp/ledger/internal/testing/guard"
)

func TestMainSkipsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("test mode guard not active")
	}
	main()
}
