// Package influxdb stores live radar telemetry in InfluxDB v2.
//
// Three measurements are written, each tagged with device_id and, when
// the device is mapped, person_id:
//
//	radar_vital    heart_rate, breath_rate, ... (float fields)
//	radar_posture  point_clouds, keypoints (tag: quality)
//	radar_fall     count (tag: severity)
//
// Points are batched (influxdb.batch_size) and flushed on
// influxdb.flush_interval or on Close.
package influxdb
