// Package control changes device state.
//
// Every on/off change, whether requested through the API, fired by a
// schedule, observed by the status reconciler or received over MQTT, goes
// through Service.Apply:
//
//	validate intent → send wire command → commit transition →
//	usage session → device log → broadcast
//
// The Dispatcher speaks the controller's HTTP GET protocol:
//
//	light/led  GET http://{addr}/led{1|2}?state={0|1}
//	fan        GET http://{addr}/fan?speed={0|n}
//	door       GET http://{addr}/door?action={open|close}
//	dryer/ac   GET http://{addr}/dry?action={out|in}
//
// A command that fails does not block the state update; its outcome is
// reported in Result.Dispatch.
package control
