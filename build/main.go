package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

func run(a *goyek.A, name string, args ...string) {
	cmd := exec.CommandContext(a.Context(), name, args...)
	cmd.Stdout = a.Output()
	cmd.Stderr = a.Output()
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "go", "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run unit tests with the race detector",
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-race", "-short", "./...")
	},
})

var validate = goyek.Define(goyek.Task{
	Name:  "validate",
	Usage: "Validate the sample session in testdata",
	Action: func(a *goyek.A) {
		run(a, "go", "run", "./cmd/trialkit", "validate", "testdata/session.yaml")
	},
})

var _ = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "Run vet, test and validate",
	Deps:  goyek.Deps{vet, test, validate},
})

func main() {
	goyek.Main(os.Args[1:])
}
