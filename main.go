package main

import (
	_ "capsift/internal/analyze"
	"capsift/internal/command"
	_ "capsift/internal/dump"
	_ "capsift/internal/serve"

	"github.com/sirupsen/logrus"
)

func main() {
	err := command.Execute()
	if err != nil {
		logrus.WithError(err).Fatal("Fatal to command.Execute")
	}
}
