// Package mqtt connects the home core to an MQTT broker.
//
// MQTT is optional. When enabled, every committed device transition is
// mirrored out and external controllers can request transitions in:
//
//	graylogic/home/device/{id}/state    published, retained snapshot
//	graylogic/home/event/device_updates published per transition
//	graylogic/home/device/{id}/command  subscribed
//	graylogic/system/status             retained presence and Last Will
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.HandleCommands(control.CommandHandler(svc))
package mqtt
