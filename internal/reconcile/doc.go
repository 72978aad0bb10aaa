// Package reconcile keeps recorded device state in step with the hardware.
//
// A Reconciler polls every controller address on an interval:
//
//	GET http://{addr}/api/status  →  {"LED1":1,"LED2":0,"FAN":3,"DOOR":0,"DRY":12,"TEMP":29.5,"HUM":71}
//
// Each device wired to the address reads one key of the report:
//
//	light/led  LED{n}          on when truthy
//	fan        FAN             on when > 0
//	door       DOOR            on (open) when truthy
//	dryer/ac   DRY             on (out) when > dry threshold
//
// Only a reported value that differs from the recorded is_on is applied,
// through control.Service as an observed change. Polls that fail mark the
// address's devices offline and change nothing else.
package reconcile
