// Package http implements an HTTP/1.1 client over the raw sockets of
// package tcp.
//
// A Client talks to one server and runs one request at a time. The
// blocking API sends a request and parses the reply header in Execute,
// then streams the body through ReadBody or Body:
//
//	c, err := http.NewClient("localhost", 8080)
//	if err != nil {
//	    return err
//	}
//	reply, err := c.Execute(http.NewRequest("GET", "/"), time.Second, http.WaitInfinite)
//	if err != nil {
//	    return err
//	}
//	body, err := c.ReadBody(nil)
//
// The event-driven API registers the client with a reactor.Selector.
// BeginExecute returns at once; every readiness callback advances the
// request by one stage and fires the matching notification. Errors are
// recorded and returned by EndExecute, after ReplyFinished:
//
//	sel := reactor.New()
//	c, _ := http.NewClient("localhost", 8080, http.WithSelector(sel))
//	c.ReplyFinished.Connect(func(c *http.Client) { done = true })
//	if err := c.BeginExecute(http.NewRequest("GET", "/")); err != nil {
//	    return err
//	}
//	for !done {
//	    if _, err := sel.Wait(reactor.WaitInfinite); err != nil {
//	        return err
//	    }
//	}
//	err := c.EndExecute()
//
// Plain HTTP only. Redirects are not followed and failed requests are not
// retried.
package http
