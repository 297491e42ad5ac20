// cmd/main.go is the application entry point.
package main

import "github.com/Shivanand-hulikatti/regflow/internal/cli"

func main() {
	cli.Execute()
}
