/*
Package farm diffuses concurrent writers across a fixed number of shard
files ("barns") and probabilistically drains them into a single target
file, trading strict ordering for low write contention on any one file.

Each barn is an ordinary warehouse file opened through the same
*storage.Conn as the target; Farm adds no storage format of its own.

	f := farm.New(dir, 9, codec.DefaultCompressionLevel, conn)
	err := f.Plant(ctx, value.NewString("payload"), "tag1,tag2", "objects", targetFile, 16, cfg.CleanFreshDays)

Plant routes one row to a uniformly random shard, then rolls a 1-in-16
(batchSize) chance to reap that shard's entire container into the
target. Over many Plant calls the expected number of rows moved per
reap converges to batchSize, without any writer blocking on the target
file. Passing farm.ReapAllBarns as the value instead skips the insert
and drains every shard unconditionally, for callers that want a point
when the farm is known to be empty.

Plant also carries a roughly 1-in-100,000 chance per call of triggering
CleanAllShards across every shard's container, anchored to
cleanFreshDays. A freshDays of 0 empties every shard outright (see
CleanAllShards), so this argument should always be a caller-configured
retention window (config.Config.CleanFreshDays), never a bare 0.

A shard file that has never been written to does not exist on disk yet;
Reap and CleanAllShards treat the resulting open/table-missing errors as
"nothing to do" rather than failures.
*/
package farm
