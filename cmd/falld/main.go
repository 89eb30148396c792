// Command falld serves the fall event review API.
package main

func main() {
	Execute()
}
