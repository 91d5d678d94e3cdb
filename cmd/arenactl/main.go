// Command arenactl drives and inspects arenakit allocators.
package main

func main() {
	execute()
}
