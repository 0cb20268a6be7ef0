package sqlinline

const QInsertUsageEvent = `--sql 8d1f99ff-3592-40aa-aa23-b8fb5deb9546
insert into usage_events (owner_id, job_id, event_type, success, properties)
values ($1::uuid, nullif($2, '')::uuid, $3, $4::boolean, coalesce($5::jsonb, '{}'::jsonb));
`
