// Package influxdb records climate telemetry in InfluxDB 2.x.
//
// Every status update the cloud pushes for an air conditioner becomes one
// "climate" point tagged with the thing name, carrying the numeric readings
// (indoor temperature, humidity, PM2.5, setpoint, power, fan speed).
//
// Writes go through the non-blocking batched write API of
// influxdb-client-go; batch_size and flush_interval come from config.
// Failures of batched writes surface through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteClimate(sample)
package influxdb
