package sqlinline

const QInsertUsageEvent = `--sql 16a8d5f3-4e0b-4c72-91a6-b3c7f0e2d8aa
insert into usage_events(id, user_id, event_type, success, latency_ms, created_at, properties)
values (gen_random_uuid(), $1::uuid, $2::text, $3::boolean, $4::int, now(), coalesce($5::jsonb, '{}'::jsonb));
`
