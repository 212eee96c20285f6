// Command menud ingests cafeteria menus and serves them over HTTP.
package main

import "github.com/JakeFAU/cafeteria-menu/cmd"

func main() {
	cmd.Execute()
}
