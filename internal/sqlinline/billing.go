package sqlinline

const QUpsertProduct = `--sql 9d27e4b0-5c8f-4a13-b6e9-1f0a3d7c8e22
insert into products(id, active, name, description, image, metadata)
values ($1::text, $2::boolean, $3::text, $4::text, $5::text, coalesce($6::jsonb, '{}'::jsonb))
on conflict (id) do update
set active = excluded.active,
    name = excluded.name,
    description = excluded.description,
    image = excluded.image,
    metadata = excluded.metadata;
`

const QUpsertPrice = `--sql 4b80f2d6-9e1a-4c75-8d30-6a5c2f9b1e33
insert into prices(id, product_id, active, currency, unit_amount, type, interval, interval_count, trial_period_days)
values ($1::text, $2::text, $3::boolean, $4::text, $5::bigint, $6::text, $7::text, $8::int, $9::int)
on conflict (id) do update
set product_id = excluded.product_id,
    active = excluded.active,
    currency = excluded.currency,
    unit_amount = excluded.unit_amount,
    type = excluded.type,
    interval = excluded.interval,
    interval_count = excluded.interval_count,
    trial_period_days = excluded.trial_period_days;
`

const QUpsertSubscription = `--sql 71c9a3e5-2f6d-40b8-95a7-e8d1b4f0c644
insert into subscriptions(
  id, user_id, status, price_id, quantity, cancel_at_period_end,
  current_period_start, current_period_end, ended_at, created_at
)
values ($1::text, $2::uuid, $3::text, $4::text, $5::int, $6::boolean,
        $7::timestamptz, $8::timestamptz, $9::timestamptz, $10::timestamptz)
on conflict (id) do update
set status = excluded.status,
    price_id = excluded.price_id,
    quantity = excluded.quantity,
    cancel_at_period_end = excluded.cancel_at_period_end,
    current_period_start = excluded.current_period_start,
    current_period_end = excluded.current_period_end,
    ended_at = excluded.ended_at;
`

const QSelectProductsWithPrices = `--sql c6e12d84-7a0b-4f59-83ce-b9f5a2d6e755
select p.id, p.active, p.name, coalesce(p.description, ''), coalesce(p.image, ''), p.metadata,
       pr.id, pr.active, pr.currency, pr.unit_amount, pr.type,
       coalesce(pr.interval, ''), coalesce(pr.interval_count, 1), coalesce(pr.trial_period_days, 0)
from products p
join prices pr on pr.product_id = p.id
where p.active and pr.active
order by (p.metadata->>'index') asc nulls last, pr.unit_amount asc;
`

const QSelectSubscriptionForUser = `--sql 30d8f6c2-1b4e-4a97-b0d5-8c7e9f2a4866
select s.id, s.user_id, s.status, s.price_id, s.quantity, s.cancel_at_period_end,
       s.current_period_start, s.current_period_end, s.ended_at, s.created_at,
       pr.id, pr.product_id, pr.active, pr.currency, pr.unit_amount, pr.type,
       coalesce(pr.interval, ''), coalesce(pr.interval_count, 1), coalesce(pr.trial_period_days, 0),
       p.id, p.active, p.name, coalesce(p.description, ''), coalesce(p.image, ''), p.metadata
from subscriptions s
join prices pr on pr.id = s.price_id
join products p on p.id = pr.product_id
where s.user_id = $1::uuid
  and s.status in ('trialing', 'active')
order by s.created_at desc
limit 1;
`

const QUpsertCustomer = `--sql eb45a7f1-8d2c-4063-9e1b-f6a0c3d8b977
insert into customers(user_id, stripe_customer_id)
values ($1::uuid, $2::text)
on conflict (user_id) do update
set stripe_customer_id = excluded.stripe_customer_id;
`

const QSelectCustomer = `--sql 52f0b9d7-3c6e-4185-a4f2-0d8b7e1c5a88
select stripe_customer_id from customers where user_id = $1::uuid;
`

const QSelectUserIDByCustomer = `--sql ad63c1e8-9f42-4b07-8c5d-2e7a0f4b6d99
select user_id from customers where stripe_customer_id = $1::text;
`
