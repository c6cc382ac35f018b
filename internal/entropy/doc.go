// Package entropy fetches the external seed each epoch is sealed with.
//
// The source is the Bitcoin chain tip hash served over plain HTTP, with
// retry and a configured fallback seed so round scheduling never blocks
// on the network.
package entropy
