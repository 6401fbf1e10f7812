// Package sink models the delivery targets that subscriptions point at.
//
// A Table hands out numeric handles for sinks living in a subscriber's
// process and remembers which process owns each one; the broker uses that
// to work out a subscription's target process and to address deliveries.
package sink
