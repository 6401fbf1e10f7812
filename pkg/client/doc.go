/*
Package client is the process-side API of the notification broker.

A Client stands for one process. It registers its sinks in the shared sink
table, builds registration and ticket payloads in the shared gateway, and
issues requests to the broker:

	c := client.NewClient(srv, arena, sinks, types.PID(os.Getpid()))

	id, err := c.Register(ctx, client.Registration{
		Sink: sink.Func(func(ctx context.Context, n sink.Notification) error {
			t, err := c.Lock(n)
			if err != nil {
				return err
			}
			fmt.Println(t.Events, t.Path1)
			return nil
		}),
		Sources:   types.SourceShell | types.SourceInterrupt,
		Events:    types.EventAll,
		Scope:     itemid.MustParse("/srv/data"),
		Recursive: true,
	})

	c.Notify(ctx, types.EventUpdateItem, itemid.MustParse("/srv/data/a.txt"), nil)

Sinks run on the broker's request loop. They must read the ticket before
returning and must not call back into the Client.
*/
package client
