package main

import (
	"log"

	"toolkiosk/app"
	"toolkiosk/db"
	"toolkiosk/diag"
	"toolkiosk/events"
	"toolkiosk/rfid"
	"toolkiosk/routes"
)

func main() {
	application := app.MustNew()
	defer application.Close()

	inbox := rfid.NewInbox()
	diagStore := diag.NewStore()

	consumer := events.NewConsumer(db.NewRepo(application.DB), diagStore, inbox, application.Log)
	if err := application.Bus.Subscribe(consumer.Handlers()); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	routes.RegisterRoutes(application.Router, application, inbox, diagStore)

	port := application.Config.HTTPPort
	log.Printf("listening on :%s", port)
	_ = application.Router.Run(":" + port)
}
