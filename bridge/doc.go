// Package bridge adapts legacy call shapes to the broker's primary API.
//
// Some callers still hand over a single payload mapping with the recipient
// embedded in it, under "recipient", "to" or "target". Communicator reshapes
// such calls into Broker.Send without adding any message logic of its own.
package bridge
