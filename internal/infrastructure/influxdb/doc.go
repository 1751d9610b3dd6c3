// Package influxdb records console time series in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each device
// connection change is written to the device_status measurement, and the
// dashboard counters to console_stats, so operators can chart availability
// over time.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time series; a nil *Client ignores writes
//	}
//	defer client.Close()
//
//	client.WriteDeviceStatus("3f2a...", "Meter1", "TCP", true)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are reported through
// SetOnError.
package influxdb
