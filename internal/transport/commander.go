package transport

// Queue is the shared transport a Commander and its parent Engine both
// enqueue into; the audio thread is the sole consumer. Exported so
// internal/engine can own one and drain it each TurnHandle without this
// package depending back on internal/engine.
type Queue struct {
	q *batchQueue
}

// NewQueue returns a transport queue with a small initial capacity; it
// grows on the producer side as needed (see batchQueue.grow).
func NewQueue() *Queue {
	return &Queue{q: newBatchQueue(64)}
}

// Drain removes and returns every Batch queued so far. Called once at the
// top of each TurnHandle, before any mixing.
func (q *Queue) Drain() []Batch {
	return q.q.drainAll()
}

func (q *Queue) push(b Batch) {
	q.q.push(b)
}

// issuer is implemented by anything that can accept one more Command into
// whatever batch it's currently building (a Commander builds a one-command
// batch per call; a Transaction appends to its buffer until Commit).
type issuer struct {
	enqueue func(Command)
}

// CommandIssuer is embedded by Commander and Transaction to give both the
// full closed set of command-builder methods (spec §6: "Public commands
// apply to Engine, Commander, Transaction uniformly") without duplicating
// each method body per type.
type CommandIssuer struct {
	issuer
}

// Commander is a cheap, clonable handle sharing the same queue as its
// parent Engine. Dropping the last Commander does not affect the Engine:
// the Queue is reference-counted only by Go's garbage collector.
type Commander struct {
	CommandIssuer
	queue *Queue
}

// NewCommander wraps a Queue for use by game threads.
func NewCommander(q *Queue) *Commander {
	c := &Commander{queue: q}
	c.CommandIssuer = CommandIssuer{issuer{enqueue: c.enqueueOne}}
	return c
}

func (c *Commander) enqueueOne(cmd Command) {
	c.queue.push(Batch{Commands: []Command{cmd}})
}

// Clone returns a new Commander sharing the same underlying queue.
func (c *Commander) Clone() *Commander {
	return NewCommander(c.queue)
}

// BeginTransaction starts a local buffer of commands. lengthHint sizes the
// initial buffer capacity; it is never a hard limit.
func (c *Commander) BeginTransaction(lengthHint int) *Transaction {
	return newTransaction(c.queue, lengthHint)
}

// Transaction buffers commands locally until Commit delivers them as one
// indivisible batch, or Abort discards them.
type Transaction struct {
	CommandIssuer
	queue *Queue
	buf   []Command
}

func newTransaction(q *Queue, lengthHint int) *Transaction {
	if lengthHint < 0 {
		lengthHint = 0
	}
	t := &Transaction{queue: q, buf: make([]Command, 0, lengthHint)}
	t.CommandIssuer = CommandIssuer{issuer{enqueue: t.append}}
	return t
}

func (t *Transaction) append(cmd Command) {
	t.buf = append(t.buf, cmd)
}

// BeginTransaction on a Transaction returns a fresh, independent
// Transaction against the same underlying queue.
func (t *Transaction) BeginTransaction(lengthHint int) *Transaction {
	return newTransaction(t.queue, lengthHint)
}

// Commit atomically enqueues every buffered command as one batch. No
// command outside the batch can be interleaved between its first and last
// element once delivered.
func (t *Transaction) Commit() {
	if len(t.buf) == 0 {
		return
	}
	t.queue.push(Batch{Commands: t.buf})
	t.buf = nil
}

// Abort discards the buffered commands without delivering them.
func (t *Transaction) Abort() {
	t.buf = nil
}
