package main

import "github.com/ValentinKolb/idxdb/cmd"

func main() {
	cmd.Execute()
}
