// Package datastream implements the data stream service: per study
// deployment, the configured streams of measurements uploaded by devices.
//
// The service speaks API 1.2. Clients on 1.0 and 1.1 are served through the
// migration steps in Steps:
//
//	1.0 -> 1.1  GetDataStream gains toSequenceIdInclusive (null for old
//	            callers); data points gain sensorSpecificData, which is
//	            stripped from responses to 1.0 callers.
//	1.1 -> 1.2  GetDataStream.dataStream is renamed to dataStreamId.
package datastream
