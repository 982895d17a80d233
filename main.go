package main

import "github.com/frahmantamala/caz-payments/cmd"

func main() {
	cmd.Execute()
}
