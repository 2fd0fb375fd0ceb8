/*
Package client implements the collaborators of a coordinator on top of real
services: an Ethereum node reached with ethclient, the transaction gateway
and the relay reached over HTTP, and a wallet backed by a local key.
*/
package client
