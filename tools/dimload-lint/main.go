// dimload-lint flags storage access patterns that defeat batch loading.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/ersonp/dimload/tools/dimload-lint/analyzers/loopcall"
)

func main() {
	singlechecker.Main(loopcall.Analyzer)
}
