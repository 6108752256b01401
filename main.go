package main

import "dubbing-service/app"

func main() {
	app.Run()
}
