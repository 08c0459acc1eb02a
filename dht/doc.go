// Package dht reads DHT11 and DHT22 (AM2302) humidity/temperature sensors
// over their single-wire protocol by polling a GPIO pin.
//
// A transaction is sampled as a trace of falling edge times, decoded into a
// 40 bit frame, interpreted for the sensor model and checked against the
// previous reading. Software timed sampling on a non realtime host fails
// regularly, so Dev.Read retries with a cooldown between attempts and always
// returns a Reading whose Status says whether the values can be trusted.
//
// Only one transaction may be on the wire at a time. A Dev serialises its
// own calls; two Devs on the same pin are not supported.
package dht
