package main

import "github.com/Another0Noob/mangadex-sync/cmd"

func main() {
	cmd.Execute()
}
