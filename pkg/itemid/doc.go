// Package itemid implements the hierarchical item identifiers that scope
// subscriptions and describe where a change happened.
//
// An ItemID is compared segment by segment; ancestry is prefix containment.
// FSResolver binds the namespace to a directory tree so that subscriptions
// with a scope can be turned into directory watches, and watcher paths can
// be turned back into identifiers.
package itemid
