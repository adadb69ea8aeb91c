// Command attendctl administers a faceattend deployment.
package main

func main() {
	Execute()
}
